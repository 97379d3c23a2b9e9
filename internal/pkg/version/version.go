package version

// Version is the orchestrator version stamped on predictors after a
// successful update. Overridden at build time with -ldflags "-X".
var Version = "0.4.0"
