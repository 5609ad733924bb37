package tracker

// TableName is the tracking table created inside the migrated keyspace.
const TableName = "schema_migrations"

func createTableCQL(keyspace string) string {
	return `CREATE TABLE IF NOT EXISTS ` + keyspace + `.` + TableName + ` (
    filename   text PRIMARY KEY,
    checksum   text,
    applied_on timestamp
)`
}

func selectChecksumCQL(keyspace string) string {
	return `SELECT checksum FROM ` + keyspace + `.` + TableName + ` WHERE filename = ?`
}

func selectAllCQL(keyspace string) string {
	return `SELECT filename, checksum, applied_on FROM ` + keyspace + `.` + TableName
}

func insertCQL(keyspace string) string {
	return `INSERT INTO ` + keyspace + `.` + TableName +
		` (filename, checksum, applied_on) VALUES (?, ?, ?) IF NOT EXISTS`
}
