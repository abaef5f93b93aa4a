package version

// Set through -ldflags "-X github.com/keshon/basicbot/internal/version.BuildDate=..."
var (
	AppName        = "basicbot"
	AppDescription = "A small command shell for Discord with hot-reloadable cogs"
	BuildDate      = ""
	GoVersion      = ""
	Commit         = ""
)
