package core

// SchedulerSwitcher temporarily migrates the calling fiber to another
// scheduler. Construction captures the thread's current scheduler and, when
// a target is given, switches to it; Close switches back:
//
//	sw := core.NewSchedulerSwitcher(other)
//	defer sw.Close()
//	// runs on a worker of other
type SchedulerSwitcher struct {
	caller *Scheduler
}

// NewSchedulerSwitcher migrates to target (which may be nil to only capture
// the restore point).
func NewSchedulerSwitcher(target *Scheduler) *SchedulerSwitcher {
	sw := &SchedulerSwitcher{caller: CurrentScheduler()}
	if target != nil {
		target.SwitchTo(AnyThread)
	}
	return sw
}

// Close migrates back to the scheduler captured at construction, if any.
func (sw *SchedulerSwitcher) Close() {
	if sw.caller != nil {
		sw.caller.SwitchTo(AnyThread)
	}
}
