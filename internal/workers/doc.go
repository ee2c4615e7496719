/*
Package workers sizes codec thread pools in containerized environments.

# Overview

Go 1.19+ sets GOMAXPROCS from the container CPU limit, but runtime.NumCPU still
reports the host's CPUs, and libav defaults to the host count when a codec's
thread count is left at zero. On a 64-core node with a 2-core limit that means
dozens of codec threads fighting over two CPUs.

Every codec context opened by a render job asks this package instead:

	dec := workers.ForDecoders(activeStreams) // split across concurrent decoders
	enc := workers.ForEncoder()               // one per CPU, capped at MaxCodecThreads

# Environment Variable Override

CODEC_THREADS pins every codec to a fixed count (still capped by the limit
passed to Count). Invalid or non-positive values are ignored.
*/
package workers
