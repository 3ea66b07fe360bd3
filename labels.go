package sahi

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadLabels reads the class names of the detector from the given text file,
// one label per line.  Blank lines and lines starting with # are skipped.
func LoadLabels(file string) ([]string, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)

	var labels []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		labels = append(labels, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	return labels, nil
}

// Label returns the class name for the class index, or the index itself when
// there is no label for it
func Label(labels []string, class int) string {
	if class >= 0 && class < len(labels) {
		return labels[class]
	}

	return fmt.Sprintf("class%d", class)
}
