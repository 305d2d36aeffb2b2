package proc

// Schedule performs one round-robin scan (spec §4.4): starting just
// after the currently running slot, it returns the first Runnable
// slot found. It never mutates any slot's state — only a trap
// handler or the page-fault handler may transition a process in or
// out of Runnable. When nothing is runnable, ok is false and the
// caller (the kernel's trap loop) is expected to poll its keyboard
// hook and retry, exactly as spec §4.4 describes spinning.
func (t *Table_t) Schedule() (pid int, ok bool) {
	n := len(t.Procs)
	for i := 1; i <= n; i++ {
		cand := (t.Current + i) % n
		if t.Procs[cand].State == Runnable {
			return cand, true
		}
	}
	return 0, false
}

// RunNext advances t.Current to the next runnable slot and returns
// it, or reports ok == false if none exists.
func (t *Table_t) RunNext() (pid int, ok bool) {
	pid, ok = t.Schedule()
	if ok {
		t.Current = pid
	}
	return
}
