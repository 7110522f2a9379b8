package messages

const viFallback = "Nhắc nhở nhẹ nhàng..."

// ViMessages is the Vietnamese catalog.
var ViMessages = map[Category][]string{
	Urgent: {
		"Task này để mốc meo rồi à? Làm ngay!",
		"Bạn hứa xong việc này rồi mà? Tôi rất thất vọng.",
		"Không làm là tôi ám bạn cả đời đấy!",
		"Deadline qua rồi, tự trọng đi!",
		"Alo? Cảnh sát task đâu, bắt lấy kẻ lười biếng này!",
		"Định để tôi nhắc đến bao giờ? Hả?",
		"Hứa thật nhiều, thất hứa thì cũng thật nhiều...",
	},
	Warning: {
		"Ngửi thấy mùi khét của deadline chưa?",
		"30 phút nữa là 'toang'. Liệu hồn!",
		"Nhanh tay lên, tôi đang dõi theo bạn đấy.",
		"Đừng để nước đến chân mới nhảy. Nhảy đi!",
		"Tí nữa là muộn, làm luôn cho nóng!",
		"Cẩn thận, thời gian không chờ đợi ai (và tôi cũng thế).",
	},
}
