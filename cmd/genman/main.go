//go:build ignore

// genman generates the throughput man page.
// Usage: go run cmd/genman/main.go > throughput.1
package main

import (
	"fmt"
	"os"
)

func main() {
	// Use a fixed date for reproducible builds/CI
	date := "October 2026"

	manpage := fmt.Sprintf(`.TH THROUGHPUT 1 "%s" "throughput 1.1.0" "User Commands"
.SH NAME
throughput \- measure the throughput of stdin or a socket
.SH SYNOPSIS
.B throughput
[\fIflags\fR]
.SH DESCRIPTION
.B throughput
reads a byte stream into a fixed-size buffer and reports the transfer rate
after every batch of buffer fills. The stream is standard input, or the first
TCP connection accepted on \fB\-\-addr\fR:\fB\-\-port\fR. The payload is not
interpreted.
.PP
Each buffer fill reads until the buffer is full or the stream ends, so a
batch of \fIbufsize\fR \(mu \fIiterations\fR bytes always yields exactly one
sample. A stream that ends mid-batch yields one final, shorter sample.
.SH OPTIONS
.TP
.BR \-l ", " \-\-addr " \fIip\fR"
IP address to listen on. Defaults to 127.0.0.1. Requires \fB\-\-port\fR.
.TP
.BR \-p ", " \-\-port " \fIport\fR"
TCP port to listen on. Without \fB\-\-addr\fR and \fB\-\-port\fR, stdin is read.
.TP
.BR \-b ", " \-\-bufsize " \fIbytes\fR"
Size of the read buffer (default 4096).
.TP
.BR \-i ", " \-\-iterations " \fIn\fR"
Buffer fills per measurement (default 1).
.TP
.B \-\-pass
Copy input to stdout and write reports to stderr.
.TP
.BR \-f ", " \-\-format " \fIformat\fR"
\fBauto\fR (default), \fBline\fR, \fBjson\fR or \fBinteractive\fR.
\fBauto\fR redraws in place on a terminal and prints one line per sample otherwise.
.TP
.B \-\-interval \fIduration\fR
Minimum time between interactive redraws (default 1s, 0 = every sample).
.TP
.B \-\-rcvbuf \fIbytes\fR
Socket receive buffer size (0 = OS default).
.TP
.B \-\-metrics\-addr \fIaddr\fR
Serve Prometheus metrics on \fIaddr\fR at /metrics.
.TP
.B \-\-log\-level \fIlevel\fR
debug, info, warn or error (default info).
.TP
.BR \-q ", " \-\-quiet
Only log errors.
.TP
.BR \-h ", " \-\-help
Show help message.
.TP
.BR \-v ", " \-\-version
Show version information.
.SH EXAMPLES
Measure a local pipe:
.PP
.RS
.nf
head \-c 1G /dev/zero | throughput \-b 65536 \-i 16
.fi
.RE
.PP
Measure a network link, paired with the feed helper:
.PP
.RS
.nf
throughput \-\-port 5001
feed \-\-connect 127.0.0.1:5001 \-\-profile lte
.fi
.RE
.PP
Watch a transfer without disturbing it:
.PP
.RS
.nf
tar cf \- dir | throughput \-\-pass | ssh host 'tar xf \-'
.fi
.RE
.SH EXIT STATUS
0 when the stream ends, 2 on invalid flags, 1 on bind, read or write errors,
130 when interrupted.
.SH NOTES
.IP \(bu 2
Rates are shown in 1024-based units. A sample whose elapsed time measures as
zero has an undefined rate, shown as \fB-\fR and left out of the average.
.IP \(bu 2
Only one TCP connection is measured per run; the listener is closed after accept.
.SH SEE ALSO
.BR pv (1),
.BR iperf3 (1),
.BR nc (1)
`, date)

	fmt.Fprint(os.Stdout, manpage)
}
