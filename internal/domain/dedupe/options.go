package dedupe

// Option applies a configuration option to the in-memory Deduper.
type Option func(*inMemoryDeduper)

// WithMaxSize sets how many pending ids are kept before the oldest is
// dropped. Zero or less means unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}
