/*
Package gateway runs an external classifier program once per request and
recovers the single JSON value it produces.

Two protocols are supported:

	Framed (RunFramed)
	  stdin  : [count u32 LE] { [len u32 LE] [frame bytes] } x count, then EOF
	  stdout : exactly one JSON value (whole output)

	Scanned (RunScanned)
	  argv   : program args...
	  stdin  : none
	  stdout : free-form log lines, the result is the last line shaped {...}
	           found within the final TailLines lines

Lifecycle per invocation:

	spawn ──► write/accumulate ──► terminal event ──► resolve ──► reap
	                                  │
	                                  ├─ process exit
	                                  ├─ timer fired      (SIGKILL)
	                                  └─ caller cancelled (SIGKILL)

Terminal events race into a write-once result cell. The first one wins, every
later one is a no-op. The process is always waited for before the call returns,
so an invocation never leaves a zombie or a stray kill behind.

Failures are *Error values carrying a Kind:

	KindInput    rejected before spawning (empty batch)
	KindSpawn    program could not be started
	KindProcess  program exited non-zero (exit code + stderr kept)
	KindParse    program exited zero but no JSON could be recovered
	KindTimeout  program ran past the deadline and was killed
	KindCanceled caller context ended first and the program was killed

Use errors.Is(err, gateway.ErrTimeout) and friends to branch on kinds.
*/
package gateway
