package models

// User-facing messages. They are shown verbatim by the interface, so they stay
// in the product language.
const (
	MsgStreamTimeout    = "Ops, parece que a solicitação expirou! Por favor, tente novamente. Se o problema persistir, avise-nos. Obrigado pela paciência!"
	MsgStreamFailure    = "Ops, algo deu errado! Por favor, tente novamente. Se o problema persistir, avise-nos. Obrigado pela paciência!"
	MsgStreamDisconnect = "Ops, a conexão com o servidor foi interrompida inesperadamente! Por favor, tente novamente mais tarde. Se o problema persistir, avise-nos."
	MsgNoAnswer         = "Ops, não recebemos uma resposta do assistente! Por favor, tente novamente. Se o problema persistir, avise-nos."
	MsgUnknownError     = "Erro desconhecido."
	MsgResponderFailed  = "Ops, o assistente não conseguiu concluir a resposta! Por favor, tente novamente."

	MsgLoginSuccess        = "Conectado com sucesso!"
	MsgLoginFailed         = "Ops! Ocorreu um erro durante o login. Por favor, tente novamente."
	MsgInvalidCredentials  = "Usuário ou senha incorretos."
	MsgLogoutSuccess       = "Desconectado com sucesso!"
	MsgThreadCreateFailed  = "Não foi possível criar a thread."
	MsgThreadListFailed    = "Não foi possível carregar as conversas."
	MsgHistoryLoadFailed   = "Não foi possível carregar o histórico da conversa."
	MsgResetFailed         = "Não foi possível limpar a memória do assistente."
	MsgFeedbackFailed      = "Não foi possível enviar o feedback."
	MsgFeedbackSent        = "Feedback enviado. Obrigado!"
	MsgNotLoggedIn         = "Por favor, entre com seu usuário e senha para continuar."
	MsgStreamBusy          = "Aguarde a resposta anterior terminar antes de enviar outra pergunta."
	MsgNoChart             = "Nenhum gráfico foi gerado."
	MsgChartCreationFailed = "Ops! Ocorreu um erro na criação do gráfico."
	MsgNoSQL               = "Nenhuma consulta SQL foi gerada."
	MsgGreeting            = "Como posso ajudar?"
	MsgPromptPlaceholder   = "Faça uma pergunta!"
)
