package dedupe

// Option applies a configuration option to the deduper.
type Option func(*windowDeduper)

// WithMaxSize sets how many recent IDs are remembered. Zero or negative
// keeps every ID.
func WithMaxSize(maxSize int) Option {
	return func(d *windowDeduper) {
		d.maxSize = maxSize
	}
}
