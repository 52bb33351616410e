package device

// Blinker is the activity LED. Implementations must not block.
type Blinker interface {
	Toggle()
	Set(on bool)
}

// nullBlinker is used when no LED is fitted.
type nullBlinker struct{}

func (nullBlinker) Toggle()    {}
func (nullBlinker) Set(on bool) {}

// Blink patterns (count, inter-toggle delay in ms).
const (
	startBlinkCount    = 3
	startBlinkDelay    = 280
	jumpBlinkCount     = 2
	jumpBlinkDelay     = 220
	activityBlinkCount = 1
	activityBlinkDelay = 30
	pingBlinkCount     = 3
	pingBlinkDelay     = 60
)

// blinkQueue schedules LED toggles against the millisecond tick so the main
// loop never blocks on indication. A pattern is count on/off cycles, i.e.
// count*2 toggles.
type blinkQueue struct {
	remaining int
	interval  uint32
	next      uint32
}

// enqueue schedules a pattern. Unless forced, an in-flight pattern is left
// to finish.
func (q *blinkQueue) enqueue(count int, interval uint32, force bool, now uint32) {
	toggles := count * 2
	if toggles == 0 {
		return
	}
	if !force && q.remaining != 0 {
		return
	}
	q.remaining = toggles
	q.interval = interval
	q.next = now
}

// service performs at most one due toggle per call.
func (q *blinkQueue) service(led Blinker, now uint32) {
	if q.remaining == 0 {
		return
	}
	if now < q.next {
		return
	}
	led.Toggle()
	q.remaining--
	q.next = now + q.interval
	if q.remaining == 0 {
		led.Set(false)
	}
}
