package atlas

// BuildOptions provides flexible configuration for atlas generation
type BuildOptions struct {
	// Cell geometry
	CellSize int

	// Final encoding
	Format      string // "jpeg" or "png"
	Quality     int    // jpeg quality for the final encode
	MaxFileSize int64  // byte budget triggering a single recompression

	// Per-cell re-encode quality, fixed regardless of the final Quality
	CellQuality int
}

// DefaultBuildOptions returns the standard atlas configuration
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		CellSize:    512,
		Format:      "jpeg",
		Quality:     85,
		MaxFileSize: 4 * 1024 * 1024,
		CellQuality: 80,
	}
}

// FastBuildOptions returns a configuration tuned for throughput over fidelity
func FastBuildOptions() BuildOptions {
	opts := DefaultBuildOptions()
	opts.CellSize = 384
	opts.Quality = 70
	return opts
}

// WithQuality overrides the final encode quality
func (opts BuildOptions) WithQuality(quality int) BuildOptions {
	opts.Quality = quality
	return opts
}

// WithFormat overrides the output format
func (opts BuildOptions) WithFormat(format string) BuildOptions {
	opts.Format = format
	return opts
}

// WithMaxFileSize overrides the encoded-size budget
func (opts BuildOptions) WithMaxFileSize(maxBytes int64) BuildOptions {
	opts.MaxFileSize = maxBytes
	return opts
}
