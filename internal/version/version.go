package version

// Version is the release version.
// Commit is overridden at build time:
//
//	go build -ldflags "-X stem420/internal/version.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "0.1.0"
	Commit  = "dev"
)
