package app

import "fmt"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandWorker は運用HTTPサーバーとセッション掃除ジョブを起動する常駐モード。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandChangeRole はユーザーの役割を変更し、既存セッションを無効化する。
	CommandChangeRole Command = "change-role"
	// CommandApprove は記事を承認し、通知の配信完了まで待って終了する。
	CommandApprove Command = "approve"
	// CommandCreatePublisher は記者として発行元を作成する。
	CommandCreatePublisher Command = "create-publisher"
	// CommandSubscribe は読者を発行元または記者に購読させる。
	CommandSubscribe Command = "subscribe"
	// CommandPublishNewsletter は記者としてニュースレターを作成し、発行する。
	CommandPublishNewsletter Command = "publish-newsletter"
	// CommandUnknown は解釈できないサブコマンド。
	CommandUnknown Command = ""
)

// commandArity はサブコマンドごとの必須引数の数。
var commandArity = map[Command]int{
	CommandWorker:            0,
	CommandMigrate:           0,
	CommandHealthcheck:       0,
	CommandChangeRole:        2,
	CommandApprove:           2,
	CommandCreatePublisher:   2,
	CommandSubscribe:         3,
	CommandPublishNewsletter: 3,
}

// usage はサブコマンドの一覧。
const usage = `usage: newsdesk [command]
  worker
  migrate
  healthcheck
  change-role <username> <role>
  approve <article-id> <editor-username>
  create-publisher <journalist-username> <name>
  subscribe <reader-username> <publisher|journalist> <target-id>
  publish-newsletter <journalist-username> <title> <content>`

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandWorkerを、サポート外の場合はCommandUnknownを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandWorker
	}

	cmd := Command(args[0])
	if _, ok := commandArity[cmd]; !ok {
		return CommandUnknown
	}
	return cmd
}

// commandArgs はサブコマンド名を除いた引数を必須数だけ返す。
// 数が足りない場合はusageを含むエラーを返す。余分な引数は無視する。
func commandArgs(cmd Command, args []string) ([]string, error) {
	n := commandArity[cmd]
	if len(args) == 0 {
		return nil, nil
	}
	rest := args[1:]
	if len(rest) < n {
		return nil, fmt.Errorf("%s requires %d argument(s)\n%s", cmd, n, usage)
	}
	return rest[:n], nil
}
