package sampler

// Clock is a nanosecond-resolution time source. Both readings of a cycle come
// from the same Clock, so only differences between readings are meaningful.
type Clock interface {
	Nanotime() (int64, error)
}
