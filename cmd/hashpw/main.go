// hashpw はログインユーザー設定 (users[].password_hash) 用の argon2id ハッシュを出力します。
//
//	echo -n 'secret' | hashpw
//	hashpw -password secret
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/waliduser3737-spec/api-photo-project/pkg/auth"
)

func main() {
	password := flag.String("password", "", "password to hash (reads stdin when empty)")
	flag.Parse()

	pw := *password
	if pw == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "パスワードを読み込めませんでした:", err)
			os.Exit(1)
		}
		pw = strings.TrimRight(line, "\r\n")
	}
	if pw == "" {
		fmt.Fprintln(os.Stderr, "パスワードが空です")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(pw, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ハッシュの生成に失敗しました:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
