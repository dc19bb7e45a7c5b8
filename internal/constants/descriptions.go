package constants

const (
	TailwriterShortDescription = "Write record streams into time partitioned files"
	TailwriterLongDescription  = `
Tailwriter: records in, partitioned files out.

Tailwriter routes a stream of records into files laid out by a time based directory template.
Writers are kept open per directory and rotated on record count, size, age or idleness. Files
are written under a temporary name and only renamed to their final name once complete.

Common commands:

  # Write JSONL records from a file using a stage config
  tailwriter write --config stage.hcl events.jsonl

  # Validate a stage config
  tailwriter validate --config stage.hcl

  # Finalize temporary files left behind by a crashed writer
  tailwriter recover --prefix data /data/2024/01/15

  # Print the records of a finalized file as JSON lines
  tailwriter cat --config stage.hcl /data/2024/01/15/data_cn8s1kq6o2b7ui4mh3tg.avro
`
)
