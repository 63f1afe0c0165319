package build

const (
	// Gzip is the default compressor for rotated log files.
	Gzip = "gzip"

	// Zstd is an alternative compressor for rotated log files.
	Zstd = "zstd"
)

// logCompressors maps each supported compressor to the file suffix of the
// rotated logs it produces.
var logCompressors = map[string]string{
	Gzip: "gz",
	Zstd: "zst",
}

// SupportedLogCompressor returns whether or not logCompressor is a supported
// compression algorithm for log files.
func SupportedLogCompressor(logCompressor string) bool {
	_, ok := logCompressors[logCompressor]

	return ok
}
