package server

// unboundedPipe returns a send side and a receive side of a channel with no
// capacity limit: the I/O goroutine and the handler goroutine must never
// block on each other, since both also do blocking I/O (pipe reads/writes,
// PTY writes) elsewhere. A bridging goroutine holds the backlog in a plain
// slice and forwards to out as soon as a receiver is ready.
func unboundedPipe[T any]() (chan<- T, <-chan T) {
	in := make(chan T)
	out := make(chan T)

	go func() {
		defer close(out)
		var queue []T
		for {
			if len(queue) == 0 {
				v, ok := <-in
				if !ok {
					return
				}
				queue = append(queue, v)
				continue
			}
			select {
			case v, ok := <-in:
				if !ok {
					for _, q := range queue {
						out <- q
					}
					return
				}
				queue = append(queue, v)
			case out <- queue[0]:
				queue = queue[1:]
			}
		}
	}()

	return in, out
}
