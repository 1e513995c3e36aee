package segment

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultStopwords are function words and listing boilerplate that never make useful tags.
var DefaultStopwords = []string{
	"的", "了", "在", "是", "我", "有", "和", "就", "不", "人", "都", "一", "一个", "上", "也", "很",
	"到", "说", "要", "去", "你", "会", "着", "没有", "看", "好", "自己", "这", "那", "个", "们", "中",
	"来", "用", "年", "月", "日", "时", "分", "秒", "元", "块", "钱", "件", "只", "双", "条", "套",
	"台", "部", "张", "本", "支", "瓶", "盒", "袋", "箱", "包", "斤", "克", "升", "米", "厘米", "毫米",
	"新款", "正品", "包邮", "热卖", "爆款", "特价", "优惠", "促销", "限量", "秒杀", "清仓",
}

// LoadStopwords reads one stopword per line from path. Blank lines and "#" comments are skipped.
func LoadStopwords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stopwords: %w", err)
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		w := strings.TrimSpace(sc.Text())
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		words = append(words, w)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stopwords: %w", err)
	}
	return words, nil
}
