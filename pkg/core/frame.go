package core

// Snapshot is the per-tick player and game state the host hands to the recorder.
type Snapshot struct {
	PlayerX       float64
	PlayerY       float64
	Lives         int
	Score         int
	CurrentWeapon int
	Stage         int
	Inputs        ButtonSet
}

// FrameRecord is one recorded tick. Frame numbers are dense and start at 0.
type FrameRecord struct {
	FrameNumber   int
	PlayerX       float64
	PlayerY       float64
	Lives         int
	Score         int
	CurrentWeapon int
	Stage         int
	Inputs        ButtonSet
	// Timestamp is seconds since recording start at the fixed tick rate.
	Timestamp float64
}

// NewFrameRecord stamps a snapshot with its frame number and derived timestamp.
func NewFrameRecord(frame int, s Snapshot) FrameRecord {
	return FrameRecord{
		FrameNumber:   frame,
		PlayerX:       s.PlayerX,
		PlayerY:       s.PlayerY,
		Lives:         s.Lives,
		Score:         s.Score,
		CurrentWeapon: s.CurrentWeapon,
		Stage:         s.Stage,
		Inputs:        s.Inputs,
		Timestamp:     FrameTimestamp(frame),
	}
}

// FrameTimestamp converts a frame number to seconds at TickRate.
func FrameTimestamp(frame int) float64 {
	return float64(frame) / TickRate
}
