// Package logx is a thin structured-logging facade over zerolog.
//
// It exists so the rest of the codebase never imports zerolog directly:
// components receive a Logger (usually derived with With(...)) and the
// Service owns sink/level configuration, which can be swapped at runtime
// via Apply().
package logx
