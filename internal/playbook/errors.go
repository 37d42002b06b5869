package playbook

import "errors"

// ErrCorruptState is returned by Load when the on-disk Playbook failed
// validation and had to be quarantined and reseeded.
var ErrCorruptState = errors.New("playbook: corrupt state, quarantined and reseeded")

// ErrInvalidPlaybook is returned by Save when the caller attempts to
// persist a Playbook that violates I1/I2.
var ErrInvalidPlaybook = errors.New("playbook: invalid playbook")
