package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword と isTerminal はテストで差し替える。
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// readPasswordInput はhash-password用のパスワードを標準入力から読み込む。
// 端末の場合はpromptに案内を出してエコーなしで読み、パイプの場合は最初の1行を読む。
// パスワードをコマンドライン引数で受け取るとプロセス一覧やシェル履歴に残るため、引数では受け付けない。
func readPasswordInput(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && isTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		pw, err := readPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		if errors.Is(err, io.EOF) {
			return "", errors.New("no password on stdin")
		}
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	// 前後の空白はパスワードの一部として扱い、改行だけを取り除く
	return strings.TrimRight(line, "\r\n"), nil
}
