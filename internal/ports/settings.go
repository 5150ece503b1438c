package ports

// Settings is the key/value preference store. Values are strings; callers parse them.
type Settings interface {
	GetString(key, def string) string
}
