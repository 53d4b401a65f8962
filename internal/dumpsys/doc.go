// Package dumpsys assembles a diagnostic report of registered services.
//
// Dumpsys resolves the set of services to process, dumps them one by one
// through a bounded Invoker and writes a textual report:
//
//	ResolvingTargets -> PerServiceDump (loop) -> Done
//
// Report format in the dump everything mode:
//
//	Currently running services:
//	  running1
//	  skipped3 (skipped)
//	-------------------------------------------------------------------------------
//	DUMP OF SERVICE running1:
//	<dump text>
//	--------- 0.012s was the duration of dumpsys running1
//
// A single named target is dumped without any framing. Services, which are
// not running, are reported on stderr as "Can't find service: <name>". A
// timed out dump is replaced by a timeout notice on stdout.
//
// Invariants:
//   - Services are dumped sequentially, in registry order.
//   - Every service is dumped at most once per run.
//   - Only registry failure makes Run fail, per service problems are
//     reported inline.
package dumpsys
