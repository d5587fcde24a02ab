// Command reviewpipe scrapes public review pages, normalizes them and
// loads the result into a document store and a search index.
package main

import "github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/cmd"

func main() {
	cmd.Execute()
}
