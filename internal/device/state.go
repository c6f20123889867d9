package device

import "strconv"

// Step is the fixed brightness/volume increment.
const Step = 10

const (
	minLevel = 0
	maxLevel = 100
)

// State is the mock appliance record the assistant controls.
type State struct {
	Brightness int  `json:"brightness"`
	Volume     int  `json:"volume"`
	WiFi       bool `json:"wifi"`
	Lights     bool `json:"lights"`
	Thermostat int  `json:"thermostat"`

	mirror Mirror
}

// Change describes one mutation, as published to a Mirror.
type Change struct {
	Noun  string
	Value string
}

// Mirror receives every change made to the state.
type Mirror interface {
	Publish(c Change)
}

func Default() *State {
	return &State{
		Brightness: 50,
		Volume:     50,
		WiFi:       true,
		Lights:     false,
		Thermostat: 22,
	}
}

// Attach sets the mirror that follows subsequent changes. nil detaches.
func (s *State) Attach(m Mirror) {
	s.mirror = m
}

func (s *State) SetLights(on bool) {
	s.Lights = on
	s.publish("LIGHTS", onOff(on))
}

func (s *State) SetWiFi(on bool) {
	s.WiFi = on
	s.publish("WIFI", onOff(on))
}

func (s *State) SetThermostat(deg int) {
	s.Thermostat = deg
	s.publish("THERMOSTAT", strconv.Itoa(deg))
}

// AdjustBrightness moves brightness by delta and returns the clamped result.
func (s *State) AdjustBrightness(delta int) int {
	s.Brightness = clamp(s.Brightness + delta)
	s.publish("BRIGHTNESS", strconv.Itoa(s.Brightness))
	return s.Brightness
}

// AdjustVolume moves volume by delta and returns the clamped result.
func (s *State) AdjustVolume(delta int) int {
	s.Volume = clamp(s.Volume + delta)
	s.publish("VOLUME", strconv.Itoa(s.Volume))
	return s.Volume
}

// SpeechVolume is the playback volume in [0,1].
func (s *State) SpeechVolume() float64 {
	return float64(s.Volume) / maxLevel
}

// Snapshot returns a copy without the mirror attached.
func (s *State) Snapshot() State {
	cp := *s
	cp.mirror = nil
	return cp
}

func (s *State) publish(noun, value string) {
	if s.mirror == nil {
		return
	}
	s.mirror.Publish(Change{Noun: noun, Value: value})
}

func clamp(v int) int {
	if v < minLevel {
		return minLevel
	}
	if v > maxLevel {
		return maxLevel
	}
	return v
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
