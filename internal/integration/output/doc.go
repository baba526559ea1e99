// Package output classifies toolchain output into leveled log records.
//
// Raw chunks read from a child's stdout and stderr are split into lines,
// cleaned of terminal escape sequences, and run through an ordered rule
// chain. The first rule that recognizes a line decides its level:
//
//	TagRule      E/Tag: msg, W/..., D/..., I/...   (logcat)
//	PrefixRule   flutter: msg                      (tool-prefixed, Info)
//	MarkerRule   " ERROR  msg", " WARN  msg", " LOG  msg" (Metro)
//	custom rules supplied with WithRules, e.g. a Lua script
//	KeywordRule  ERROR/EXCEPTION/FATAL/FAILURE, WARN, DEBUG, else Info
//
// Classification never fails; every line gets exactly one level.
//
// Records are kept in a bounded FIFO Buffer (DefaultMaxEntries). When full,
// the oldest record is evicted; surviving records keep their order and
// sequence numbers. Clear empties the buffer without resetting the sequence.
//
// Export writes "[timestamp] [LEVEL] message" lines through a temp file and
// rename. ReadExport parses them back.
package output
