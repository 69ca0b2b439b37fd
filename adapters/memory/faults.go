package memory

import "sync"

// faults queues errors to return from the next calls of an operation.
type faults struct {
	fmu  sync.Mutex
	next map[string][]error
}

// FailNext makes the next call of op return err. Calls queue in order.
func (f *faults) FailNext(op string, err error) {
	f.fmu.Lock()
	defer f.fmu.Unlock()
	if f.next == nil {
		f.next = make(map[string][]error)
	}
	f.next[op] = append(f.next[op], err)
}

func (f *faults) take(op string) error {
	f.fmu.Lock()
	defer f.fmu.Unlock()
	q := f.next[op]
	if len(q) == 0 {
		return nil
	}
	f.next[op] = q[1:]
	return q[0]
}
