package process

// Signaler is the liveness and signalling surface used by the termination
// protocol.
type Signaler interface {
	AliveChecker
	SendSignal(pid int, sig Signal) error
}

// Spawner starts a process and returns its identity.
type Spawner interface {
	Spawn(spec Spec, l *Listeners) (Identity, error)
}

// System is everything the supervisor needs from the operating system.
type System interface {
	Spawner
	Signaler
}

// OS is the System backed by the real operating system.
type OS struct{}

var _ System = OS{}

func (OS) Spawn(spec Spec, l *Listeners) (Identity, error) {
	p, err := Start(spec, l)
	if err != nil {
		return Identity{}, err
	}
	return p.Identity(), nil
}

func (OS) IsAlive(pid int) bool { return IsAlive(pid) }

func (OS) SendSignal(pid int, sig Signal) error { return SendSignal(pid, sig) }
