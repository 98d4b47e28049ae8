package emitters

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/gocarina/gocsv"
)

// TrackRow is one vehicle observation in a recorded track file.
// Positions are frame coordinates, velocities cells per frame.
type TrackRow struct {
	Frame int64   `csv:"frame"`
	ID    int     `csv:"id"`
	X     float32 `csv:"x"`
	Y     float32 `csv:"y"`
	VX    float32 `csv:"vx"`
	VY    float32 `csv:"vy"`
}

// Keyframe is the set of observations sharing one frame stamp.
type Keyframe struct {
	Frame int64
	Rows  []TrackRow
}

// Replay plays recorded keyframes back onto a World, looping at the end.
type Replay struct {
	Keyframes []Keyframe
}

// LoadTrack reads a track CSV (header frame,id,x,y,vx,vy) from path.
func LoadTrack(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening track file: %w", err)
	}
	defer f.Close()

	r, err := ReadTrack(f)
	if err != nil {
		return nil, fmt.Errorf("reading track %s: %w", path, err)
	}
	slog.Info("track loaded", "path", path, "keyframes", len(r.Keyframes))
	return r, nil
}

// ReadTrack parses track rows from r and groups them into keyframes ordered
// by frame stamp. Row order within a keyframe is preserved.
func ReadTrack(r io.Reader) (*Replay, error) {
	var rows []TrackRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parsing track csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("track has no rows")
	}

	sort.SliceStable(rows, func(a, b int) bool { return rows[a].Frame < rows[b].Frame })

	replay := &Replay{}
	for _, row := range rows {
		n := len(replay.Keyframes)
		if n == 0 || replay.Keyframes[n-1].Frame != row.Frame {
			replay.Keyframes = append(replay.Keyframes, Keyframe{Frame: row.Frame})
			n++
		}
		replay.Keyframes[n-1].Rows = append(replay.Keyframes[n-1].Rows, row)
	}
	return replay, nil
}

// Len returns the number of keyframes.
func (r *Replay) Len() int { return len(r.Keyframes) }

// Apply makes keyframe k (modulo the keyframe count) the emitter state of w:
// observed tracks are spawned or moved, all others removed.
// Returns the frame stamp of the applied keyframe.
func (r *Replay) Apply(w *World, k int) int64 {
	n := len(r.Keyframes)
	if n == 0 {
		panic("emitters: apply on empty replay")
	}
	k %= n
	if k < 0 {
		k += n
	}
	kf := r.Keyframes[k]

	keep := make(map[int]struct{}, len(kf.Rows))
	for _, row := range kf.Rows {
		w.Spawn(row.ID, row.X, row.Y, row.VX, row.VY)
		keep[row.ID] = struct{}{}
	}
	w.Retain(keep)
	return kf.Frame
}

// WriteTrack writes rows as CSV, with a header row when header is set.
func WriteTrack(out io.Writer, rows []TrackRow, header bool) error {
	if header {
		return gocsv.Marshal(rows, out)
	}
	return gocsv.MarshalWithoutHeaders(rows, out)
}

// Observe returns the current emitter state as track rows stamped with frame,
// ordered by track id.
func (w *World) Observe(frame int64) []TrackRow {
	rows := make([]TrackRow, 0, w.Len())
	query := w.filter.Query()
	for query.Next() {
		pos, head, _, track := query.Get()
		rows = append(rows, TrackRow{
			Frame: frame,
			ID:    track.ID,
			X:     pos.X,
			Y:     pos.Y,
			VX:    head.VX,
			VY:    head.VY,
		})
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a].ID < rows[b].ID })
	return rows
}
