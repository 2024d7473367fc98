// Package buildinfo exposes version metadata stamped at build time via
// -ldflags.
package buildinfo

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	return map[string]string{
		"name":    "riderdispatch",
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}
