package flow

// Counter tracks the active depth and the one-shot step flags of the
// running workflow.
type Counter struct {
	Level         Level
	NextEvent     bool
	PreviousEvent bool
}

// NewCounter returns a counter at level one.
func NewCounter() Counter {
	return Counter{Level: LevelOne}
}

// ClearFlags drops pending step requests.
func (c *Counter) ClearFlags() {
	c.NextEvent = false
	c.PreviousEvent = false
}

// Reset returns the counter to level one with no pending steps.
func (c *Counter) Reset() {
	c.ClearFlags()
	c.Level = LevelOne
}
