package ioq

// noCopy is embedded in types that hold locks and must not be copied
// after first use. go vet's copylocks check flags copies of any value
// whose type has Lock and Unlock methods.
type noCopy struct{}

// Lock is a no-op used by go vet.
func (*noCopy) Lock() {}

// Unlock is a no-op used by go vet.
func (*noCopy) Unlock() {}
