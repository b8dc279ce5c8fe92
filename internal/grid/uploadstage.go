package grid

// UploadStage accumulates chunked inline-image payload bytes arriving
// through DCS hook/put/unhook (Kitty graphics protocol, Sixel). It is a
// seam for a future image pipeline: no decode or render logic lives here,
// matching the spec's non-goal of rendering terminal cells.
type UploadStage struct {
	active bool
	kind   byte
	buf    []byte
}

// Begin starts accumulating a new staged upload identified by the DCS
// final action byte (e.g. Sixel uses 'q').
func (u *UploadStage) Begin(kind byte) {
	u.active = true
	u.kind = kind
	u.buf = u.buf[:0]
}

// Append adds raw payload bytes to the in-progress upload. A no-op if no
// upload is active.
func (u *UploadStage) Append(data []byte) {
	if !u.active {
		return
	}
	u.buf = append(u.buf, data...)
}

// Finalize ends the in-progress upload and returns its accumulated bytes
// and kind marker. The caller owns decoding; this stage only buffers.
func (u *UploadStage) Finalize() ([]byte, byte) {
	if !u.active {
		return nil, 0
	}
	u.active = false
	out := u.buf
	u.buf = nil
	return out, u.kind
}

// Active reports whether an upload is currently being staged.
func (u *UploadStage) Active() bool { return u.active }
