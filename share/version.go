package wsshare

// BuildVersion is set at link time with -ldflags "-X .../share.BuildVersion=..."
var BuildVersion = "0.0.0-src"
