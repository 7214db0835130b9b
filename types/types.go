package types

// ---- Runtime state (retained on runtime/state) ----

type RuntimeLevel string

const (
	LevelBooting RuntimeLevel = "booting"
	LevelRunning RuntimeLevel = "running"
	LevelStopped RuntimeLevel = "stopped"
	LevelDone    RuntimeLevel = "done"
)

type RuntimeState struct {
	Level RuntimeLevel `json:"level"`
	Error string       `json:"error,omitempty"`
	Class string       `json:"class,omitempty"` // errcode class of Error
	TS    int64        `json:"ts_ms"`
}

// ---- Ownership (retained on claims/<pin>) ----

type ClaimState struct {
	Pin   string `json:"pin"`
	Kind  string `json:"kind"` // capability kind, e.g. "digital", "pwm"
	Owner uint32 `json:"owner"`
}

// ---- USB roles (retained on runtime/usb) ----

type USBRoles struct {
	CDC  bool `json:"cdc"`
	MSC  bool `json:"msc"`
	HID  bool `json:"hid"`
	MIDI bool `json:"midi"`
}

// ---- Key events (keypad/<name>/event) ----

type KeyEvent struct {
	Key     int   `json:"key"`
	Pressed bool  `json:"pressed"`
	TS      int64 `json:"ts_ms"`
}
