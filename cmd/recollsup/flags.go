package main

import "time"

// ServeFlags Flag structs to decouple cobra from logic for testing.
type ServeFlags struct {
	NoStart        bool
	Listen         string
	ResourceSample time.Duration
}

type QueryFlags struct {
	Filter string
	Raw    bool
	JSON   bool
	Root   string
	Dir    string
}

type StartFlags struct {
	Extra []string
	Async bool
}

type StatusFlags struct {
	JSON    bool
	History int
}
