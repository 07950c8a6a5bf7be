package store

// SystemSetting is a key/value instance setting. The migrator stores the
// current schema version here.
type SystemSetting struct {
	Key   string
	Value string
}

// SystemSettingSchemaVersion is the key tracking the applied schema version.
const SystemSettingSchemaVersion = "schema_version"
