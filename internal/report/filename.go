package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// OutputFilename returns the first unused dir/keyword_N.ext, counting from 0,
// creating dir if needed.
func OutputFilename(dir, keyword, ext string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "report: create output dir %s", dir)
	}
	for i := 0; ; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.%s", keyword, i, ext))
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			return path, nil
		}
		if err != nil {
			return "", eris.Wrapf(err, "report: stat %s", path)
		}
	}
}
