package solver

import (
	"fmt"

	"github.com/pthm-cable/transitflow/field"
)

func mustMatch(pass string, a, b *field.Field) {
	if !a.SameShape(b) {
		panic(fmt.Sprintf("solver: %s: shape mismatch %dx%dx%d vs %dx%dx%d",
			pass, a.M, a.N, a.Arity(), b.M, b.N, b.Arity()))
	}
}

func mustGrid(pass string, a, b *field.Field) {
	if a.M != b.M || a.N != b.N {
		panic(fmt.Sprintf("solver: %s: grid mismatch %dx%d vs %dx%d", pass, a.M, a.N, b.M, b.N))
	}
}

func mustVector(pass string, f *field.Field) {
	if f.Arity() != 2 {
		panic(fmt.Sprintf("solver: %s: expected vector field, got arity %d", pass, f.Arity()))
	}
}

func mustScalar(pass string, f *field.Field) {
	if f.Arity() != 1 {
		panic(fmt.Sprintf("solver: %s: expected scalar field, got arity %d", pass, f.Arity()))
	}
}

func mustNotAlias(pass string, dst, src *field.Field) {
	if dst == src {
		panic(fmt.Sprintf("solver: %s: destination aliases an input", pass))
	}
}
