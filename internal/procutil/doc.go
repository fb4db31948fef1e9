// Package procutil holds child-process helpers shared by the toolkit.
// HideWindow suppresses the console window that would otherwise flash
// when the shell spawns an auxiliary window process on Windows.
package procutil
