package wsshare

import (
	"fmt"
	"sync/atomic"
)

// ConnStats keeps track of both currently open and total session counts
type ConnStats struct {
	count   int32
	open    int32
	faulted int32
}

// New adds one to the total session count and returns it
func (c *ConnStats) New() int32 {
	return atomic.AddInt32(&c.count, 1)
}

// Open adds one to the open session count
func (c *ConnStats) Open() {
	atomic.AddInt32(&c.open, 1)
}

// Close subtracts one from the open session count. faulted records a
// session that ended with anything other than a normal close.
func (c *ConnStats) Close(faulted bool) {
	atomic.AddInt32(&c.open, -1)
	if faulted {
		atomic.AddInt32(&c.faulted, 1)
	}
}

// NumOpen returns the number of sessions currently open
func (c *ConnStats) NumOpen() int32 {
	return atomic.LoadInt32(&c.open)
}

// NumFaulted returns the number of sessions that ended with a fault
func (c *ConnStats) NumFaulted() int32 {
	return atomic.LoadInt32(&c.faulted)
}

func (c *ConnStats) String() string {
	return fmt.Sprintf("[%d/%d]", atomic.LoadInt32(&c.open), atomic.LoadInt32(&c.count))
}
