// Package lua runs user-supplied classification rules written in Lua.
//
// A rules script defines a global function:
//
//	function classify(line)
//	  if line:find("^BUILD SUCCESSFUL") then
//	    return "debug"
//	  end
//	  if line:find("Xcode build done") then
//	    return { level = "info", message = "xcodebuild finished" }
//	  end
//	  return nil -- fall through to the built-in keyword scan
//	end
//
// Scripts run in a sandbox with only the base, table, string and math
// libraries. File loading, os, io and debug are unavailable. Each call is
// bounded by a timeout; a script that errors, times out or returns an
// unknown level simply does not match.
package lua
