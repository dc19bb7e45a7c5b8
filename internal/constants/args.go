package constants

// Argument names
const (
	ArgHelp          = "help"
	ArgConfig        = "config"
	ArgDirTemplate   = "dir-template"
	ArgTimeDriver    = "time-driver"
	ArgFormat        = "format"
	ArgCompression   = "compression"
	ArgUniquePrefix  = "prefix"
	ArgMaxRecords    = "max-records"
	ArgBatchSize     = "batch-size"
	ArgErrorFile     = "error-file"
	ArgMetricsListen = "metrics-listen"
	ArgMemoryMaxMb   = "memory-max-mb"
	ArgCPUProfile    = "cpu-profile"
	ArgAvroSchema    = "avro-schema"
)
