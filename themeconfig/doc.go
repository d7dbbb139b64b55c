// Package themeconfig stores the active theme and its typed settings.
//
// Settings arrive as command-line literals; ParseValue decides whether each
// one is a bool, float, int or string before it is written, so a theme reads
// back the type it expects.
package themeconfig
