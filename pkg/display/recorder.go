package display

import "sync"

// Recorder keeps every rendered screen. It backs headless runs and tests.
type Recorder struct {
	mu      sync.Mutex
	screens []Screen
}

// Render implements Display.
func (r *Recorder) Render(s Screen) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.screens = append(r.screens, s)
}

// Screens returns a copy of the rendered screens.
func (r *Recorder) Screens() []Screen {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Screen(nil), r.screens...)
}

// Last returns the most recent screen.
func (r *Recorder) Last() (Screen, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.screens) == 0 {
		return Screen{}, false
	}
	return r.screens[len(r.screens)-1], true
}
