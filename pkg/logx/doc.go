// Package logx provides a small structured logger over zerolog.
//
// Components take a logx.Logger by value; the zero value is a safe no-op,
// so wiring code can pass loggers unconditionally.
package logx
