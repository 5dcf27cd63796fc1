// Command transmute converts files between formats through the shortest or
// highest quality chain of external converters.
//
// One-shot commands (formats, route, routes, convert, batch, history,
// check) run in process. serve starts the long-running daemon with its HTTP
// API; jobs and cancel talk to that API. A .env file in the working
// directory is loaded before configuration so TRANSMUTE_* variables can be
// kept next to a project.
package main
