// Package cli is the safeshare command-line client.
//
// Commands:
//   - send <file>      offer a file and print the rendezvous code
//   - receive <code>   fetch the file offered under code into the download dir
//   - history          list recent transfers from the local history database
//
// Configuration comes from defaults, then the file named by -c/--config, then
// the persistent flags. Logs go to stderr as text; progress and results go to
// stdout.
package cli
